// Package forward stores forward-mode AD gradients scoped to nesting levels.
//
// Forward AD runs alongside the primal computation, so several nested
// forward-AD invocations can be in flight at once. Each invocation is a
// Level identified by a small integer index. Indices are recycled once a
// level is released, which keeps the user-facing level equal to the nesting
// depth but means an index alone does not identify an invocation.
//
// Two types cooperate:
//   - Registry maps live indices to their Level. A Level remembers every
//     Grad currently holding a value for it.
//   - Grad maps level index to gradient value for one differentiable object.
//
// Releasing a level resets that level's entry on every registered Grad
// before the index can be handed out again, so a value stored under an old
// incarnation is never visible under a new one.
//
// Lock order is Level then Grad. A Grad never holds its own lock while
// calling into a Level, and it never keeps a pointer to a Level: it looks
// levels up through the Registry when it needs one. Either side may be torn
// down first; both teardown paths treat "the other side is already gone" as
// success.
//
// Example:
//
//	reg := forward.NewRegistry()
//	lvl := reg.NextIndex()
//
//	g := forward.NewGrad(reg)
//	if err := g.Set(tangent, lvl); err != nil {
//	    return err
//	}
//	_ = g.Value(lvl) // tangent
//
//	_ = reg.Release(lvl)
//	_ = g.Contains(lvl) // false
package forward
