package policy

import "encoding/json"

// SingleExecutionExactOutput admits exactly one successful call ever;
// every subsequent call is rejected regardless of arguments or
// result.
type SingleExecutionExactOutput struct {
	used bool
}

func NewSingleExecutionExactOutput(map[string]interface{}) (OutputPolicy, error) {
	return &SingleExecutionExactOutput{}, nil
}

func (p *SingleExecutionExactOutput) TypeTag() string { return "SingleExecutionExactOutput" }

func (p *SingleExecutionExactOutput) Admit(interface{}) (bool, string) {
	if p.used {
		return false, "single-use output policy already exhausted"
	}
	return true, ""
}

func (p *SingleExecutionExactOutput) Advance(interface{}) { p.used = true }

func (p *SingleExecutionExactOutput) State() ([]byte, error) {
	return json.Marshal(map[string]bool{"used": p.used})
}

func (p *SingleExecutionExactOutput) LoadState(data []byte) error {
	var s struct {
		Used bool `json:"used"`
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	p.used = s.Used
	return nil
}

// UnlimitedOutputPolicy always admits; used for code meant to be
// called repeatedly (e.g. nested jobs feeding a loop).
type UnlimitedOutputPolicy struct{}

func NewUnlimitedOutputPolicy(map[string]interface{}) (OutputPolicy, error) {
	return &UnlimitedOutputPolicy{}, nil
}

func (p *UnlimitedOutputPolicy) TypeTag() string                { return "UnlimitedOutputPolicy" }
func (p *UnlimitedOutputPolicy) Admit(interface{}) (bool, string) { return true, "" }
func (p *UnlimitedOutputPolicy) Advance(interface{})             {}
func (p *UnlimitedOutputPolicy) State() ([]byte, error)          { return []byte("{}"), nil }
func (p *UnlimitedOutputPolicy) LoadState([]byte) error          { return nil }
