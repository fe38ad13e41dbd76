package store

import (
	"github.com/jaredpereira/mud/facts"
)

// ApplyFact mirrors an authoritative fact into this store, frozen schema
// and all. Uniqueness is not re-checked: the fact already won any race on
// the server, and the mirror must converge to the server's answer even when
// a speculative local fact disagrees.
func (s *Store) ApplyFact(f facts.Fact) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	f.Value = f.Value.Normalize(f.Schema)
	if f.Schema.Cardinality == facts.One {
		// a speculative local fact may hold the slot under a different id;
		// the authoritative fact displaces it
		local, err := s.eavOneLocked(f.Entity, f.Attribute)
		if err != nil {
			return err
		}
		if local != nil && local.ID != f.ID {
			if err := s.purgeFactLocked(*local); err != nil {
				return err
			}
		}
	}
	if _, err := s.writeFact(f, false); err != nil {
		return err
	}
	writeOutcomes.WithLabelValues("mirror", "ok").Inc()
	return nil
}

// purgeFactLocked hard-deletes a fact and all of its index entries. Only
// mirror reconciliation does this; everything user-facing retracts.
func (s *Store) purgeFactLocked(f facts.Fact) error {
	b := s.db.NewBatch()
	_ = b.Delete(factKey(f.ID), nil)
	_ = b.Delete(eavKey(f.Entity, f.Attribute, f.ID), nil)
	_ = b.Delete(aevKey(f.Attribute, f.Entity, f.ID), nil)
	_ = b.Delete(timeKey(f.LastUpdated, f.ID), nil)
	if f.Schema.Unique {
		k := aveKey(f.Attribute, valueHash(f.Value))
		_ = b.Delete(k, nil)
		s.uniqueCache.Remove(string(k))
	}
	if f.Value.IsRef() {
		_ = b.Delete(vaeKey(f.Value.Target(), f.Attribute, f.ID), nil)
	}
	return s.db.Apply(b, s.wo)
}

// RevertFact restores a fact to a prior snapshot, or removes it outright
// when prev is nil. The replica unwinds its speculative writes with this
// before a pull patch lands, so the patch applies to a clean base.
func (s *Store) RevertFact(id string, prev *facts.Fact) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if prev == nil {
		cur, err := s.getFactLocked(id)
		if err != nil || cur == nil {
			return err
		}
		return s.purgeFactLocked(*cur)
	}
	_, err := s.writeFact(*prev, false)
	return err
}

// ApplyRetraction tombstones a mirrored fact by id. Unknown ids are
// ignored; the server may retract facts this replica never materialized.
func (s *Store) ApplyRetraction(id string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	f, err := s.getFactLocked(id)
	if err != nil || f == nil {
		return err
	}
	f.Retracted = true
	_, err = s.writeFact(*f, false)
	return err
}

// ApplyMessage mirrors a message, keeping the server-assigned sequence
// index and timestamp. A speculative local copy of the same message moves
// to the authoritative key.
func (s *Store) ApplyMessage(m facts.Message) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	b := s.db.NewBatch()
	if err := s.writeMessage(b, m); err != nil {
		return err
	}
	return s.db.Apply(b, s.wo)
}
