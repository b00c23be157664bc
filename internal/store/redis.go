// internal/store/redis.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rainbowcity/dialogue/internal/types"
)

// Redis backs the four repositories with JSON documents in Redis. Entities
// live under {prefix}dlg:/ses:/trn:/msg: keys; scope membership is kept in
// index lists so scoped listing never scans.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis wraps an existing client. A ping verifies connectivity.
func NewRedis(ctx context.Context, client redis.UniversalClient, prefix string) (*Redis, error) {
	if prefix == "" {
		prefix = "dialogue:"
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Redis{client: client, prefix: prefix}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Stores returns the repository bundle backed by this connection.
func (r *Redis) Stores() types.Stores {
	return types.Stores{
		Dialogues: &redisDialogues{r},
		Sessions:  &redisSessions{r},
		Turns:     &redisTurns{r},
		Messages:  &redisMessages{r},
	}
}

func (r *Redis) key(parts ...string) string {
	out := r.prefix
	for i, p := range parts {
		if i > 0 {
			out += ":"
		}
		out += p
	}
	return out
}

func (r *Redis) getJSON(ctx context.Context, key string, dst any) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func (r *Redis) setJSON(ctx context.Context, pipe redis.Pipeliner, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	pipe.Set(ctx, key, data, 0)
	return nil
}

func (r *Redis) exists(ctx context.Context, key string) error {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}

type redisDialogues struct{ r *Redis }

func (s *redisDialogues) Create(ctx context.Context, d *types.Dialogue) error {
	pipe := s.r.client.Pipeline()
	if err := s.r.setJSON(ctx, pipe, s.r.key("dlg", string(d.ID)), d); err != nil {
		return err
	}
	pipe.RPush(ctx, s.r.key("dlg", "all"), string(d.ID))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisDialogues) Get(ctx context.Context, id types.DialogueID) (*types.Dialogue, error) {
	var d types.Dialogue
	if err := s.r.getJSON(ctx, s.r.key("dlg", string(id)), &d); err != nil {
		return nil, fmt.Errorf("dialogue %s: %w", id, err)
	}
	return &d, nil
}

func (s *redisDialogues) Update(ctx context.Context, d *types.Dialogue) error {
	if err := s.r.exists(ctx, s.r.key("dlg", string(d.ID))); err != nil {
		return fmt.Errorf("dialogue %s: %w", d.ID, err)
	}
	pipe := s.r.client.Pipeline()
	if err := s.r.setJSON(ctx, pipe, s.r.key("dlg", string(d.ID)), d); err != nil {
		return err
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisDialogues) Delete(ctx context.Context, id types.DialogueID) error {
	if err := s.r.exists(ctx, s.r.key("dlg", string(id))); err != nil {
		return fmt.Errorf("dialogue %s: %w", id, err)
	}
	pipe := s.r.client.Pipeline()
	pipe.Del(ctx, s.r.key("dlg", string(id)))
	pipe.LRem(ctx, s.r.key("dlg", "all"), 1, string(id))
	pipe.Del(ctx, s.r.key("dlg", string(id), "sessions"))
	pipe.Del(ctx, s.r.key("dlg", string(id), "messages"))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisDialogues) List(ctx context.Context) ([]*types.Dialogue, error) {
	ids, err := s.r.client.LRange(ctx, s.r.key("dlg", "all"), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*types.Dialogue, 0, len(ids))
	for _, id := range ids {
		d, err := s.Get(ctx, types.DialogueID(id))
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *redisDialogues) Active(ctx context.Context) ([]*types.Dialogue, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, d := range all {
		if d.IsActive {
			out = append(out, d)
		}
	}
	return out, nil
}

type redisSessions struct{ r *Redis }

func (s *redisSessions) Create(ctx context.Context, sess *types.Session) error {
	pipe := s.r.client.Pipeline()
	if err := s.r.setJSON(ctx, pipe, s.r.key("ses", string(sess.ID)), sess); err != nil {
		return err
	}
	pipe.RPush(ctx, s.r.key("dlg", string(sess.DialogueID), "sessions"), string(sess.ID))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisSessions) Get(ctx context.Context, id types.SessionID) (*types.Session, error) {
	var sess types.Session
	if err := s.r.getJSON(ctx, s.r.key("ses", string(id)), &sess); err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *redisSessions) Update(ctx context.Context, sess *types.Session) error {
	if err := s.r.exists(ctx, s.r.key("ses", string(sess.ID))); err != nil {
		return fmt.Errorf("session %s: %w", sess.ID, err)
	}
	pipe := s.r.client.Pipeline()
	if err := s.r.setJSON(ctx, pipe, s.r.key("ses", string(sess.ID)), sess); err != nil {
		return err
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisSessions) Delete(ctx context.Context, id types.SessionID) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.r.client.Pipeline()
	pipe.Del(ctx, s.r.key("ses", string(id)))
	pipe.LRem(ctx, s.r.key("dlg", string(sess.DialogueID), "sessions"), 1, string(id))
	pipe.Del(ctx, s.r.key("ses", string(id), "turns"))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisSessions) ByDialogue(ctx context.Context, id types.DialogueID) ([]*types.Session, error) {
	ids, err := s.r.client.LRange(ctx, s.r.key("dlg", string(id), "sessions"), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*types.Session, 0, len(ids))
	for _, sid := range ids {
		sess, err := s.Get(ctx, types.SessionID(sid))
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

type redisTurns struct{ r *Redis }

func (s *redisTurns) Create(ctx context.Context, t *types.Turn) error {
	pipe := s.r.client.Pipeline()
	if err := s.r.setJSON(ctx, pipe, s.r.key("trn", string(t.ID)), t); err != nil {
		return err
	}
	pipe.RPush(ctx, s.r.key("ses", string(t.SessionID), "turns"), string(t.ID))
	if t.Status == types.TurnOpen {
		pipe.SAdd(ctx, s.r.key("trn", "open"), string(t.ID))
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisTurns) Get(ctx context.Context, id types.TurnID) (*types.Turn, error) {
	var t types.Turn
	if err := s.r.getJSON(ctx, s.r.key("trn", string(id)), &t); err != nil {
		return nil, fmt.Errorf("turn %s: %w", id, err)
	}
	return &t, nil
}

func (s *redisTurns) Update(ctx context.Context, t *types.Turn) error {
	if err := s.r.exists(ctx, s.r.key("trn", string(t.ID))); err != nil {
		return fmt.Errorf("turn %s: %w", t.ID, err)
	}
	pipe := s.r.client.Pipeline()
	if err := s.r.setJSON(ctx, pipe, s.r.key("trn", string(t.ID)), t); err != nil {
		return err
	}
	if t.Status == types.TurnOpen {
		pipe.SAdd(ctx, s.r.key("trn", "open"), string(t.ID))
	} else {
		pipe.SRem(ctx, s.r.key("trn", "open"), string(t.ID))
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisTurns) Delete(ctx context.Context, id types.TurnID) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.r.client.Pipeline()
	pipe.Del(ctx, s.r.key("trn", string(id)))
	pipe.LRem(ctx, s.r.key("ses", string(t.SessionID), "turns"), 1, string(id))
	pipe.SRem(ctx, s.r.key("trn", "open"), string(id))
	pipe.Del(ctx, s.r.key("trn", string(id), "messages"))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisTurns) BySession(ctx context.Context, id types.SessionID) ([]*types.Turn, error) {
	ids, err := s.r.client.LRange(ctx, s.r.key("ses", string(id), "turns"), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*types.Turn, 0, len(ids))
	for _, tid := range ids {
		t, err := s.Get(ctx, types.TurnID(tid))
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *redisTurns) Open(ctx context.Context) ([]*types.Turn, error) {
	ids, err := s.r.client.SMembers(ctx, s.r.key("trn", "open")).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*types.Turn, 0, len(ids))
	for _, tid := range ids {
		t, err := s.Get(ctx, types.TurnID(tid))
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

type redisMessages struct{ r *Redis }

func (s *redisMessages) Create(ctx context.Context, m *types.Message) error {
	pipe := s.r.client.Pipeline()
	if err := s.r.setJSON(ctx, pipe, s.r.key("msg", string(m.ID)), m); err != nil {
		return err
	}
	pipe.RPush(ctx, s.r.key("trn", string(m.TurnID), "messages"), string(m.ID))
	pipe.RPush(ctx, s.r.key("dlg", string(m.DialogueID), "messages"), string(m.ID))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisMessages) Get(ctx context.Context, id types.MessageID) (*types.Message, error) {
	var m types.Message
	if err := s.r.getJSON(ctx, s.r.key("msg", string(id)), &m); err != nil {
		return nil, fmt.Errorf("message %s: %w", id, err)
	}
	return &m, nil
}

func (s *redisMessages) Update(ctx context.Context, m *types.Message) error {
	if err := s.r.exists(ctx, s.r.key("msg", string(m.ID))); err != nil {
		return fmt.Errorf("message %s: %w", m.ID, err)
	}
	pipe := s.r.client.Pipeline()
	if err := s.r.setJSON(ctx, pipe, s.r.key("msg", string(m.ID)), m); err != nil {
		return err
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisMessages) Delete(ctx context.Context, id types.MessageID) error {
	m, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.r.client.Pipeline()
	pipe.Del(ctx, s.r.key("msg", string(id)))
	pipe.LRem(ctx, s.r.key("trn", string(m.TurnID), "messages"), 1, string(id))
	pipe.LRem(ctx, s.r.key("dlg", string(m.DialogueID), "messages"), 1, string(id))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisMessages) ByTurn(ctx context.Context, id types.TurnID) ([]*types.Message, error) {
	return s.byList(ctx, s.r.key("trn", string(id), "messages"), 0)
}

func (s *redisMessages) ByDialogue(ctx context.Context, id types.DialogueID, limit int) ([]*types.Message, error) {
	return s.byList(ctx, s.r.key("dlg", string(id), "messages"), limit)
}

func (s *redisMessages) byList(ctx context.Context, key string, limit int) ([]*types.Message, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	ids, err := s.r.client.LRange(ctx, key, start, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*types.Message, 0, len(ids))
	for _, mid := range ids {
		m, err := s.Get(ctx, types.MessageID(mid))
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

var (
	_ types.DialogueStore = (*redisDialogues)(nil)
	_ types.SessionStore  = (*redisSessions)(nil)
	_ types.TurnStore     = (*redisTurns)(nil)
	_ types.MessageStore  = (*redisMessages)(nil)
	_ types.DialogueStore = (*MemoryDialogueStore)(nil)
	_ types.SessionStore  = (*MemorySessionStore)(nil)
	_ types.TurnStore     = (*MemoryTurnStore)(nil)
	_ types.MessageStore  = (*MemoryMessageStore)(nil)
)
