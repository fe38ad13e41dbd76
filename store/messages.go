package store

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/jaredpereira/mud/facts"
)

const metaLatestMessage = "latest-message"

// PostMessage appends a message, assigning it the next dense sequence
// index. Messages are never retracted.
func (s *Store) PostMessage(ctx context.Context, m facts.Message) (Result, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	latest, ok, err := s.MetaInt64(metaLatestMessage)
	if err != nil {
		return Result{}, err
	}
	m.Index = 1
	if ok {
		m.Index = latest + 1
	}
	if m.Topic == "" {
		m.Topic = "general"
	}
	if m.TS == "" {
		m.TS = s.nextStamp()
	}

	b := s.db.NewBatch()
	if err := s.writeMessage(b, m); err != nil {
		return Result{}, err
	}
	idxRaw, _ := json.Marshal(m.Index)
	_ = b.Set(metaKey(metaLatestMessage), idxRaw, nil)
	if err := s.db.Apply(b, s.wo); err != nil {
		return Result{}, errors.Wrapf(err, "apply message %s", m.ID)
	}
	writeOutcomes.WithLabelValues("message", "ok").Inc()
	return Result{Success: true}, nil
}

// writeMessage stores a message and a meta pointer to its log key. If the
// same id was already stored under another timestamp, the old entry moves:
// a mirrored message replaces its speculative local copy.
func (s *Store) writeMessage(b *pebble.Batch, m facts.Message) error {
	locator := "message-" + m.ID
	prev, ok, err := s.MetaString(locator)
	if err != nil {
		return err
	}
	k := messageKey(m.TS, m.ID)
	if ok && prev != string(k) {
		_ = b.Delete([]byte(prev), nil)
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return errors.Wrapf(err, "encode message %s", m.ID)
	}
	_ = b.Set(k, raw, nil)
	locRaw, _ := json.Marshal(string(k))
	_ = b.Set(metaKey(locator), locRaw, nil)
	return nil
}

// MessagesSince walks the message log past an exclusive watermark, in
// timestamp order.
func (s *Store) MessagesSince(since []byte) ([]facts.Message, []byte, error) {
	scanCount.WithLabelValues("messages").Inc()
	lower := []byte{tagMessage}
	if len(since) > 0 {
		lower = append(append([]byte{}, since...), 0x00)
	}
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixUpperBound([]byte{tagMessage}),
	})
	if err != nil {
		return nil, since, errors.Wrap(err, "open message iterator")
	}
	defer it.Close()

	var out []facts.Message
	last := since
	for it.First(); it.Valid(); it.Next() {
		var m facts.Message
		if err := json.Unmarshal(it.Value(), &m); err != nil {
			return nil, since, errors.Wrap(err, "decode message entry")
		}
		out = append(out, m)
		last = append(last[:0:0], it.Key()...)
	}
	return out, last, it.Error()
}
