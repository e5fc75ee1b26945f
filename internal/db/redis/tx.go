package redis

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/ragdex/internal/db"
)

// Exec runs ops inside MULTI/EXEC on one connection. Either every op is
// applied or, on a queueing error, none is.
func (s *Store) Exec(ctx context.Context, ops []db.Op) error {
	if len(ops) == 0 {
		return nil
	}

	cmds := make([]rueidis.Completed, 0, len(ops)+2)
	cmds = append(cmds, s.b().Multi().Build())
	for i, op := range ops {
		cmd, err := s.opCommand(op)
		if err != nil {
			return &db.Error{Op: db.OpExec, Err: fmt.Errorf("op %d: %w", i, err)}
		}
		cmds = append(cmds, cmd)
	}
	cmds = append(cmds, s.b().Exec().Build())

	results := s.client.DoMulti(ctx, cmds...)
	if len(results) != len(cmds) {
		return &db.Error{Op: db.OpExec, Err: fmt.Errorf("got %d replies for %d commands", len(results), len(cmds))}
	}
	for i, res := range results[:len(results)-1] {
		if err := res.Error(); err != nil {
			return &db.Error{Op: db.OpExec, Err: fmt.Errorf("queue command %d: %w", i, err)}
		}
	}

	execErr := results[len(results)-1].Error()
	switch {
	case rueidis.IsRedisNil(execErr):
		return &db.Error{Op: db.OpExec, Err: db.ErrTxAborted}
	case execErr != nil:
		return &db.Error{Op: db.OpExec, Err: execErr}
	}
	return nil
}

func (s *Store) opCommand(op db.Op) (rueidis.Completed, error) {
	switch op.Kind {
	case db.OpKindHSet:
		if len(op.Fields) == 0 {
			return rueidis.Completed{}, fmt.Errorf("hset %s: no fields", op.Key)
		}
		return s.hset(op.Key, op.Fields), nil
	case db.OpKindSAdd:
		if len(op.Members) == 0 {
			return rueidis.Completed{}, fmt.Errorf("sadd %s: no members", op.Key)
		}
		return s.b().Sadd().Key(op.Key).Member(op.Members...).Build(), nil
	case db.OpKindSet:
		return s.b().Set().Key(op.Key).Value(op.Value).Build(), nil
	case db.OpKindDel:
		if len(op.Keys) == 0 {
			return rueidis.Completed{}, fmt.Errorf("del: no keys")
		}
		return s.b().Del().Key(op.Keys...).Build(), nil
	default:
		return rueidis.Completed{}, fmt.Errorf("unknown op kind %d", op.Kind)
	}
}
