package ir

// OpKind identifies a store operation.
type OpKind string

const (
	OpPutLive       OpKind = "put_live"
	OpPutSandbox    OpKind = "put_sandbox"
	OpDeleteSandbox OpKind = "delete_sandbox"
)

// Op is one write in an atomic commit.
//
// Expect carries the version (live) or revision (sandbox) the caller read.
// Stores reject the whole commit when the persisted value differs; an Expect
// of 0 means the row must not exist yet. The written record carries Expect+1.
type Op struct {
	Kind    OpKind
	Live    *LiveRecord
	Sandbox *SandboxRecord
	Expect  int64
}

// PutLive returns an op writing live over expected version expect.
func PutLive(live *LiveRecord, expect int64) Op {
	return Op{Kind: OpPutLive, Live: live, Expect: expect}
}

// PutSandbox returns an op writing sb over expected revision expect.
func PutSandbox(sb *SandboxRecord, expect int64) Op {
	return Op{Kind: OpPutSandbox, Sandbox: sb, Expect: expect}
}

// DeleteSandbox returns an op removing sb if it is still at revision expect.
func DeleteSandbox(sb *SandboxRecord, expect int64) Op {
	return Op{Kind: OpDeleteSandbox, Sandbox: sb, Expect: expect}
}

// Ref returns the live record the op concerns.
func (o Op) Ref() RecordRef {
	if o.Live != nil {
		return o.Live.Ref
	}
	if o.Sandbox != nil {
		return o.Sandbox.Ref
	}
	return RecordRef{}
}
