package ops

import "fmt"

// Tolerance defines acceptable numeric drift between two renditions of the
// same computation, typically native inference versus an exported ONNX graph.
type Tolerance struct {
	Abs float64
	Rel float64
}

// Within reports whether got is within the tolerance of want.
func (t Tolerance) Within(got, want float64) bool {
	d := got - want
	if d < 0 {
		d = -d
	}

	ref := want
	if ref < 0 {
		ref = -ref
	}

	return d <= t.Abs+t.Rel*ref
}

// KernelTolerances defines per-stage parity targets.
var KernelTolerances = map[string]Tolerance{
	"conv1d":          {Abs: 2e-4, Rel: 2e-4},
	"convtranspose1d": {Abs: 2e-4, Rel: 2e-4},
	"weight_norm":     {Abs: 1e-5, Rel: 1e-5},
	"resblock":        {Abs: 5e-4, Rel: 5e-4},
	"generator":       {Abs: 5e-3, Rel: 1e-2},
}

func KernelTolerance(name string) (Tolerance, error) {
	t, ok := KernelTolerances[name]
	if !ok {
		return Tolerance{}, fmt.Errorf("ops: no tolerance configured for kernel %q", name)
	}

	return t, nil
}
