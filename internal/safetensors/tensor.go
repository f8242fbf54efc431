package safetensors

// Tensor holds a single tensor decoded to float32.
type Tensor struct {
	Name  string
	Shape []int64
	Data  []float32
}

// ReadFile opens path and decodes the named tensors. With no names every
// tensor is returned.
func ReadFile(path string, names ...string) (map[string]*Tensor, map[string]string, error) {
	store, err := OpenStore(path, StoreOptions{})
	if err != nil {
		return nil, nil, err
	}
	defer store.Close()

	if len(names) == 0 {
		names = store.Names()
	}

	out := make(map[string]*Tensor, len(names))
	for _, name := range names {
		t, err := store.Tensor(name)
		if err != nil {
			return nil, nil, err
		}

		out[name] = t
	}

	return out, store.Metadata(), nil
}
