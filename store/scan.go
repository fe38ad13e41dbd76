package store

import (
	"encoding/json"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/jaredpereira/mud/facts"
)

func (s *Store) scanPrefix(prefix []byte, includeRetracted bool) ([]facts.Fact, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open index iterator")
	}
	defer it.Close()

	var out []facts.Fact
	for it.First(); it.Valid(); it.Next() {
		var f facts.Fact
		if err := json.Unmarshal(it.Value(), &f); err != nil {
			return nil, errors.Wrap(err, "decode index entry")
		}
		if f.Retracted && !includeRetracted {
			continue
		}
		f.Value = f.Value.Normalize(f.Schema)
		out = append(out, f)
	}
	return out, it.Error()
}

// EAV returns every live fact for an entity, optionally narrowed to one
// attribute. For cardinality-one attributes prefer EAVOne.
func (s *Store) EAV(entity, attribute string) ([]facts.Fact, error) {
	scanCount.WithLabelValues("eav").Inc()
	prefix := key(tagEAV, entity)
	if attribute != "" {
		prefix = key(tagEAV, entity, attribute)
	}
	return s.scanPrefix(prefix, false)
}

// EAVOne returns the single live fact of a cardinality-one slot, or nil.
func (s *Store) EAVOne(entity, attribute string) (*facts.Fact, error) {
	scanCount.WithLabelValues("eav").Inc()
	return s.eavOneLocked(entity, attribute)
}

func (s *Store) eavOneLocked(entity, attribute string) (*facts.Fact, error) {
	fs, err := s.scanPrefix(key(tagEAV, entity, attribute), false)
	if err != nil || len(fs) == 0 {
		return nil, err
	}
	return &fs[0], nil
}

// AEV returns every live fact carrying an attribute, optionally scoped to
// one entity.
func (s *Store) AEV(attribute, entity string) ([]facts.Fact, error) {
	scanCount.WithLabelValues("aev").Inc()
	prefix := key(tagAEV, attribute)
	if entity != "" {
		prefix = key(tagAEV, attribute, entity)
	}
	return s.scanPrefix(prefix, false)
}

// AVE resolves a unique attribute's value to its owning live fact, or nil.
func (s *Store) AVE(attribute string, value facts.Value) (*facts.Fact, error) {
	scanCount.WithLabelValues("ave").Inc()
	return s.aveLocked(attribute, value)
}

func (s *Store) aveLocked(attribute string, value facts.Value) (*facts.Fact, error) {
	k := aveKey(attribute, valueHash(value))

	if id, ok := s.uniqueCache.Get(string(k)); ok {
		f, err := s.getFactLocked(id)
		if err != nil {
			return nil, err
		}
		if f != nil && !f.Retracted && f.Attribute == attribute && f.Value.Equal(value) {
			return f, nil
		}
		// cache entry went stale; fall through to the index
	}

	raw, closer, err := s.db.Get(k)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "ave %s", attribute)
	}
	defer closer.Close()
	var f facts.Fact
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrapf(err, "decode ave %s", attribute)
	}
	if f.Retracted {
		return nil, nil
	}
	f.Value = f.Value.Normalize(f.Schema)
	// hash-index entries are verified against the actual value
	if !f.Value.Equal(value) {
		return nil, nil
	}
	s.uniqueCache.Add(string(k), f.ID)
	return &f, nil
}

// VAE is the reverse lookup: every live reference- or parent-typed fact
// whose value points at target.
func (s *Store) VAE(target, attribute string) ([]facts.Fact, error) {
	scanCount.WithLabelValues("vae").Inc()
	prefix := key(tagVAE, target)
	if attribute != "" {
		prefix = key(tagVAE, target, attribute)
	}
	return s.scanPrefix(prefix, false)
}

// FactsSince walks the time index past an exclusive watermark. Retracted
// facts are included; the sync layer turns them into del patch ops. The
// watermark returned is the raw key of the last fact seen, suitable to be
// passed back in.
func (s *Store) FactsSince(since []byte) ([]facts.Fact, []byte, error) {
	scanCount.WithLabelValues("time").Inc()
	lower := []byte{tagTime}
	if len(since) > 0 {
		lower = append(append([]byte{}, since...), 0x00)
	}
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixUpperBound([]byte{tagTime}),
	})
	if err != nil {
		return nil, since, errors.Wrap(err, "open time iterator")
	}
	defer it.Close()

	var out []facts.Fact
	last := since
	for it.First(); it.Valid(); it.Next() {
		var f facts.Fact
		if err := json.Unmarshal(it.Value(), &f); err != nil {
			return nil, since, errors.Wrap(err, "decode time entry")
		}
		f.Value = f.Value.Normalize(f.Schema)
		out = append(out, f)
		last = append(last[:0:0], it.Key()...)
	}
	return out, last, it.Error()
}
