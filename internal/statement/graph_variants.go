package statement

// Association links a subject to an associated artifact.
type Association struct {
	Header
	Subject     string `json:"subject"`
	Association string `json:"association"`
}

func (*Association) Kind() Kind { return KindAssociation }
func (*Association) isStatement() {}

func (s *Association) ReferencedIdentifiers() []string {
	return []string{s.Association, s.Subject}
}

// Data registers one or more data artifacts.
type Data struct {
	Header
	Data IDList `json:"data"`
}

func (*Data) Kind() Kind { return KindData }
func (*Data) isStatement() {}

func (s *Data) ReferencedIdentifiers() []string {
	return append([]string(nil), s.Data...)
}

// Metadata attaches a metadata document to a subject.
type Metadata struct {
	Header
	Subject  string `json:"subject"`
	Metadata string `json:"metadata"`
}

func (*Metadata) Kind() Kind { return KindMetadata }
func (*Metadata) isStatement() {}

func (s *Metadata) ReferencedIdentifiers() []string {
	return []string{s.Metadata, s.Subject}
}

// Storage records that data is held on a storage system.
type Storage struct {
	Header
	Data       string `json:"data"`
	StoredOn   string `json:"storedOn"`
	OperatedBy string `json:"operatedBy"`
}

func (*Storage) Kind() Kind { return KindStorage }
func (*Storage) isStatement() {}

func (s *Storage) ReferencedIdentifiers() []string {
	return []string{s.Data, s.StoredOn}
}

// Computation records a computation that turned inputs into outputs.
type Computation struct {
	Header
	Computation string `json:"computation,omitempty"`
	Input       IDList `json:"input"`
	Output      IDList `json:"output"`
	OperatedBy  string `json:"operatedBy"`
	ExecutedOn  string `json:"executedOn,omitempty"`
}

func (*Computation) Kind() Kind { return KindComputation }
func (*Computation) isStatement() {}

// ReferencedIdentifiers returns input, output, then the optional
// computation and executedOn identifiers.
func (s *Computation) ReferencedIdentifiers() []string {
	refs := make([]string, 0, len(s.Input)+len(s.Output)+2)
	refs = append(refs, s.Input...)
	refs = append(refs, s.Output...)
	if s.Computation != "" {
		refs = append(refs, s.Computation)
	}
	if s.ExecutedOn != "" {
		refs = append(refs, s.ExecutedOn)
	}
	return refs
}

// Entity registers one or more entities by UUID.
type Entity struct {
	Header
	Entity IDList `json:"entity"`
}

func (*Entity) Kind() Kind { return KindEntity }
func (*Entity) isStatement() {}

// ReferencedIdentifiers is empty: entities are named by UUID, not content.
func (*Entity) ReferencedIdentifiers() []string { return nil }

// Subjects returns the identifiers closure retrieval matches a graph-scoped
// statement on. Computation has none: it is the anchor, not an annotation.
func Subjects(s Statement) []string {
	switch v := s.(type) {
	case *Data:
		return append([]string(nil), v.Data...)
	case *Metadata:
		return []string{v.Subject}
	case *Storage:
		return []string{v.Data}
	case *Association:
		return []string{v.Subject, v.Association}
	case *Entity:
		return append([]string(nil), v.Entity...)
	default:
		return nil
	}
}
