package approval

import (
	"context"
	"fmt"

	"github.com/roach88/approval/internal/ir"
)

// AuthorResolver attributes a change to identities. It is mandatory.
//
// live is the record as it will look once the change is applied: persisted
// fields overlaid with the staged and stored values of the submission.
type AuthorResolver interface {
	ResolveAuthors(ctx context.Context, live *ir.LiveRecord) ([]ir.Identity, error)
}

// AuthorResolverFunc adapts a function to AuthorResolver.
type AuthorResolverFunc func(ctx context.Context, live *ir.LiveRecord) ([]ir.Identity, error)

// ResolveAuthors calls f.
func (f AuthorResolverFunc) ResolveAuthors(ctx context.Context, live *ir.LiveRecord) ([]ir.Identity, error) {
	return f(ctx, live)
}

// PrivilegeChecker reports staff identities for staff auto-approval.
type PrivilegeChecker interface {
	IsPrivileged(ctx context.Context, id ir.Identity) (bool, error)
}

// ForbiddenChecker reports identities whose changes to ref are always denied.
type ForbiddenChecker interface {
	IsForbidden(ctx context.Context, id ir.Identity, ref ir.RecordRef) (bool, error)
}

// RequestActorFunc returns the identity behind the current request, if any.
type RequestActorFunc func(ctx context.Context) (ir.Identity, bool)

// Hooks are the host collaborators registered with a record type.
// Only Authors is required.
type Hooks struct {
	Authors      AuthorResolver
	Privilege    PrivilegeChecker
	Forbidden    ForbiddenChecker
	RequestActor RequestActorFunc
}

func (h Hooks) requestActor(ctx context.Context) (ir.Identity, bool) {
	if h.RequestActor != nil {
		return h.RequestActor(ctx)
	}
	return ActorFromContext(ctx)
}

// FieldAuthors resolves authors from a live-record field holding either a
// string or a list of strings. A missing or null field yields no authors.
func FieldAuthors(field string) AuthorResolver {
	return AuthorResolverFunc(func(_ context.Context, live *ir.LiveRecord) ([]ir.Identity, error) {
		if live == nil {
			return nil, nil
		}
		switch v := live.Fields[field].(type) {
		case nil, ir.IRNull:
			return nil, nil
		case ir.IRString:
			return []ir.Identity{ir.Identity(v)}, nil
		case ir.IRArray:
			out := make([]ir.Identity, 0, len(v))
			for i, elem := range v {
				s, ok := elem.(ir.IRString)
				if !ok {
					return nil, fmt.Errorf("field %q[%d]: want string, got %T", field, i, elem)
				}
				out = append(out, ir.Identity(s))
			}
			return out, nil
		default:
			return nil, fmt.Errorf("field %q: want string or list of strings, got %T", field, v)
		}
	})
}

// ActorAuthors attributes every change to the request actor carried by ctx.
// A request without an actor yields no authors.
func ActorAuthors() AuthorResolver {
	return AuthorResolverFunc(func(ctx context.Context, _ *ir.LiveRecord) ([]ir.Identity, error) {
		if actor, ok := ActorFromContext(ctx); ok {
			return []ir.Identity{actor}, nil
		}
		return nil, nil
	})
}

// IdentitySet is a static PrivilegeChecker and ForbiddenChecker.
type IdentitySet map[ir.Identity]bool

// NewIdentitySet builds a set from ids.
func NewIdentitySet(ids ...ir.Identity) IdentitySet {
	s := make(IdentitySet, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

// IsPrivileged reports membership.
func (s IdentitySet) IsPrivileged(_ context.Context, id ir.Identity) (bool, error) {
	return s[id], nil
}

// IsForbidden reports membership regardless of the record.
func (s IdentitySet) IsForbidden(_ context.Context, id ir.Identity, _ ir.RecordRef) (bool, error) {
	return s[id], nil
}
