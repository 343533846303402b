package api

import (
	"fmt"

	"github.com/samber/lo"

	"techroute/internal/model"
	"techroute/internal/opt"
)

func validateSolveRequest(req *model.SolveRequest) error {
	if req.InstanceID == "" {
		return fmt.Errorf("instanceId is required")
	}
	switch req.Algorithm {
	case "", opt.AlgorithmInsertion, opt.AlgorithmSplit:
	default:
		return fmt.Errorf("invalid algorithm: %s (allowed: %s, %s)", req.Algorithm, opt.AlgorithmInsertion, opt.AlgorithmSplit)
	}
	if req.Technician != "" && req.Algorithm == opt.AlgorithmInsertion {
		return fmt.Errorf("technician is only valid with the %s algorithm", opt.AlgorithmSplit)
	}
	if len(req.GiantTour) > 0 && req.Algorithm == opt.AlgorithmInsertion {
		return fmt.Errorf("giantTour is only valid with the %s algorithm", opt.AlgorithmSplit)
	}
	if d := lo.FindDuplicates(req.GiantTour); len(d) > 0 {
		return fmt.Errorf("giantTour repeats requests %v", d)
	}
	return nil
}

func validateOptions(o opt.Options) error {
	if o.Strict {
		return fmt.Errorf("strict mode is not available over HTTP")
	}
	if o.LatePenalty < 0 {
		return fmt.Errorf("latePenalty must be >= 0")
	}
	return nil
}
