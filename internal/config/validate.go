package config

import (
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rnxpipe/internal/epoch"
)

// Validation errors.
var (
	ErrInvalid          = eris.New("config: invalid configuration")
	ErrUnknownStageType = eris.New("config: unknown stage type")
)

// Stage types.
const (
	StageDownload = "download"
	StageConvert  = "convert"
	StageModify   = "modify"
	StageSplice   = "splice"
	StageSplit    = "split"
)

// StageTypes lists the supported stage types.
var StageTypes = []string{StageDownload, StageConvert, StageModify, StageSplice, StageSplit}

// Validate checks the pipeline before anything runs. Every problem found
// here is fatal.
func (c *Config) Validate() error {
	stages := c.Pipeline.Stages
	if len(stages) == 0 {
		return eris.Wrap(ErrInvalid, "pipeline has no stages")
	}
	if err := validateEpochs("pipeline", c.Pipeline.Epochs); err != nil {
		return err
	}

	seen := make(map[string]bool, len(stages))
	for i, st := range stages {
		if st.Name == "" {
			return eris.Wrapf(ErrInvalid, "stage %d has no name", i)
		}
		if seen[st.Name] {
			return eris.Wrapf(ErrInvalid, "duplicate stage name %q", st.Name)
		}
		seen[st.Name] = true

		if !slices.Contains(StageTypes, st.Type) {
			return eris.Wrapf(ErrUnknownStageType, "stage %q: %q", st.Name, st.Type)
		}
		if st.OutDir == "" {
			return eris.Wrapf(ErrInvalid, "stage %q: out_dir is required", st.Name)
		}
		if err := validateEpochs(st.Name, st.Epochs); err != nil {
			return err
		}
		if err := c.validateStage(i, st); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateStage(i int, st StageConfig) error {
	needsConverter := st.Type == StageConvert || st.Type == StageSplice || st.Type == StageSplit
	if needsConverter {
		if st.Converter == "" {
			return eris.Wrapf(ErrInvalid, "stage %q: converter is required", st.Name)
		}
		if _, ok := c.Converters[st.Converter]; !ok {
			return eris.Wrapf(ErrInvalid, "stage %q: converter %q is not defined", st.Name, st.Converter)
		}
	}
	if (st.Type == StageSplice || st.Type == StageSplit) && st.OutName == "" {
		return eris.Wrapf(ErrInvalid, "stage %q: out_name is required", st.Name)
	}

	switch st.Type {
	case StageDownload:
		if st.InpDir == "" || st.InpName == "" {
			return eris.Wrapf(ErrInvalid, "stage %q: inp_dir and inp_name are required", st.Name)
		}
	case StageSplice:
		if _, err := epoch.ParsePeriod(st.Group.Period); err != nil {
			return eris.Wrapf(ErrInvalid, "stage %q: group.period: %v", st.Name, err)
		}
		if _, err := epoch.ParseRoundMethod(st.Group.Round); err != nil {
			return eris.Wrapf(ErrInvalid, "stage %q: group.round: %v", st.Name, err)
		}
	case StageModify:
		if st.Modify == nil {
			return eris.Wrapf(ErrInvalid, "stage %q: modify options are required", st.Name)
		}
	}

	// The first stage has nothing to hand off from.
	if i == 0 && st.Inputs.Empty() {
		switch {
		case st.Type == StageDownload:
		case st.Type == StageSplit && !st.Store.Empty():
		default:
			return eris.Wrapf(ErrInvalid, "stage %q: first stage needs inputs", st.Name)
		}
	}
	return nil
}

func validateEpochs(owner string, e EpochsConfig) error {
	if e.Period != "" {
		if _, err := epoch.ParsePeriod(e.Period); err != nil {
			return eris.Wrapf(ErrInvalid, "%s: epochs.period: %v", owner, err)
		}
	}
	if _, err := epoch.ParseRoundMethod(e.Round); err != nil {
		return eris.Wrapf(ErrInvalid, "%s: epochs.round: %v", owner, err)
	}
	return nil
}
