package model

// UnmarshalText implementations reject names outside each closed set so that
// YAML, JSON, and flag input can never smuggle in an unknown enum value.
// The empty string decodes to the zero value, which is never Valid.

func (k *ActorKind) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*k = ""
		return nil
	}
	v, err := ParseActorKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

func (z *TrustZone) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*z = ""
		return nil
	}
	v, err := ParseTrustZone(string(b))
	if err != nil {
		return err
	}
	*z = v
	return nil
}

func (a *ActionType) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*a = ""
		return nil
	}
	v, err := ParseActionType(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (d *Decision) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = ""
		return nil
	}
	v, err := ParseDecision(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (s *WorkflowState) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = ""
		return nil
	}
	v, err := ParseWorkflowState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (t *StateTransition) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*t = ""
		return nil
	}
	v, err := ParseTransition(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
