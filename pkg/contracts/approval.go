package contracts

// ApprovalStatus is the per-node status of a UserCode approval entry.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "Pending"
	ApprovalApproved ApprovalStatus = "Approved"
	ApprovalDenied   ApprovalStatus = "Denied"
)

// Terminal reports whether s is a terminal state (no further transitions
// allowed out of it).
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalApproved || s == ApprovalDenied
}

// ApprovalEntry is one node's vote on a UserCode, with a mandatory
// (possibly empty) free-form reason.
type ApprovalEntry struct {
	Status ApprovalStatus `json:"status"`
	Reason string         `json:"reason"`
}

// ApprovalCollection maps each relevant NodeIdentity to its ApprovalEntry.
// Keyed by NodeID rather than the struct itself so the collection can be
// serialized as a JSON object.
type ApprovalCollection struct {
	Nodes   map[string]NodeIdentity  `json:"nodes"`
	Entries map[string]ApprovalEntry `json:"entries"`
}

// NewApprovalCollection builds a Pending entry for every given node.
func NewApprovalCollection(nodes ...NodeIdentity) ApprovalCollection {
	c := ApprovalCollection{
		Nodes:   make(map[string]NodeIdentity, len(nodes)),
		Entries: make(map[string]ApprovalEntry, len(nodes)),
	}
	for _, n := range nodes {
		c.Nodes[n.NodeID] = n
		c.Entries[n.NodeID] = ApprovalEntry{Status: ApprovalPending}
	}
	return c
}

// ForUserContext aggregates the collection: Approved iff every entry is
// Approved, Denied if any entry is Denied, Pending otherwise.
func (c ApprovalCollection) ForUserContext() ApprovalStatus {
	if len(c.Entries) == 0 {
		return ApprovalPending
	}
	allApproved := true
	for _, e := range c.Entries {
		if e.Status == ApprovalDenied {
			return ApprovalDenied
		}
		if e.Status != ApprovalApproved {
			allApproved = false
		}
	}
	if allApproved {
		return ApprovalApproved
	}
	return ApprovalPending
}

// Transition applies a new terminal status to the entry for nodeID,
// returning ApprovalTargetMissing / TerminalStateViolation on misuse.
func (c *ApprovalCollection) Transition(nodeID string, to ApprovalStatus, reason string) error {
	node, ok := c.Nodes[nodeID]
	if !ok {
		return &ApprovalTargetMissing{Node: NodeIdentity{NodeID: nodeID}}
	}
	entry := c.Entries[nodeID]
	if entry.Status.Terminal() {
		return &TerminalStateViolation{Node: node, From: entry.Status}
	}
	c.Entries[nodeID] = ApprovalEntry{Status: to, Reason: reason}
	return nil
}
