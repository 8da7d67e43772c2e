package registry

// Registry state lives only in memory. Every serialization path fails with
// ErrNotPersistent.

// MarshalBinary implements encoding.BinaryMarshaler and always fails.
func (r *Registry) MarshalBinary() ([]byte, error) { return nil, ErrNotPersistent }

// MarshalJSON implements json.Marshaler and always fails.
func (r *Registry) MarshalJSON() ([]byte, error) { return nil, ErrNotPersistent }

// MarshalCBOR implements cbor.Marshaler and always fails.
func (r *Registry) MarshalCBOR() ([]byte, error) { return nil, ErrNotPersistent }
