package db

// OpKind selects the command an Op issues inside a transaction.
type OpKind int

const (
	// OpKindHSet sets hash fields.
	OpKindHSet OpKind = iota
	// OpKindSAdd adds set members.
	OpKindSAdd
	// OpKindSet sets a string value.
	OpKindSet
	// OpKindDel deletes keys.
	OpKindDel
)

// Op is one write inside a Transactor.Exec call.
type Op struct {
	Kind    OpKind
	Key     string
	Fields  map[string]string // HSET
	Members []string          // SADD
	Value   string            // SET
	Keys    []string          // DEL
}

// HSetOp builds an HSET op.
func HSetOp(key string, fields map[string]string) Op {
	return Op{Kind: OpKindHSet, Key: key, Fields: fields}
}

// SAddOp builds an SADD op.
func SAddOp(key string, members ...string) Op {
	return Op{Kind: OpKindSAdd, Key: key, Members: members}
}

// SetOp builds a SET op.
func SetOp(key, value string) Op {
	return Op{Kind: OpKindSet, Key: key, Value: value}
}

// DelOp builds a DEL op.
func DelOp(keys ...string) Op {
	return Op{Kind: OpKindDel, Keys: keys}
}
