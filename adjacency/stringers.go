package adjacency

func (s State) String() string {
	switch s {
	case StateInitialising:
		return "Initialising"
	case StateUp:
		return "Up"
	default:
		return "State(?)"
	}
}

func (k Kind) String() string {
	switch k {
	case KindUnused:
		return "Unused"
	case KindEndnode:
		return "Endnode"
	case KindLevel1Router:
		return "Level1Router"
	case KindLevel2Router:
		return "Level2Router"
	case KindPhaseIII:
		return "PhaseIII"
	default:
		return "Kind(?)"
	}
}

func (k CircuitKind) String() string {
	switch k {
	case CircuitEthernet:
		return "Ethernet"
	case CircuitDDCMP:
		return "DDCMP"
	case CircuitBridge:
		return "Bridge"
	default:
		return "CircuitUnknown"
	}
}
