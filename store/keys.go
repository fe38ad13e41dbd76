package store

// Key layout. Every record lives under a one-byte family tag followed by
// escaped, zero-terminated segments, so entity/attribute/value strings may
// contain any byte without colliding with the segment boundaries:
//
//	f <id>                         fact by id
//	e <entity> <attribute> <id>    eav
//	a <attribute> <entity> <id>    aev
//	u <attribute> <hash64(value)>  ave (unique values, hash index)
//	v <target> <attribute> <id>    vae (reference/parent values)
//	t <lastUpdated> <id>           time-ordered, pull watermark
//	m <ts> <id>                    messages, time-ordered
//	M <name>                       store metadata
//
// A 0x00 byte inside a segment is escaped as 0x00 0xFF; the segment
// terminator is 0x00 0x01. The terminator's second byte is below every
// escape's second byte, so a segment sorts before all of its extensions and
// a prefix built from complete segments never partially matches a longer
// segment. A bare trailing 0x00 as terminator would break this: it is a
// prefix of the escape pair itself.

const (
	tagFact    = 'f'
	tagEAV     = 'e'
	tagAEV     = 'a'
	tagAVE     = 'u'
	tagVAE     = 'v'
	tagTime    = 't'
	tagMessage = 'm'
	tagMeta    = 'M'
)

func appendSegment(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		if s[i] == 0x00 {
			dst = append(dst, 0x00, 0xFF)
			continue
		}
		dst = append(dst, s[i])
	}
	return append(dst, 0x00, 0x01)
}

func key(tag byte, segments ...string) []byte {
	dst := []byte{tag}
	for _, s := range segments {
		dst = appendSegment(dst, s)
	}
	return dst
}

func factKey(id string) []byte { return key(tagFact, id) }

func eavKey(entity, attribute, id string) []byte {
	return key(tagEAV, entity, attribute, id)
}

func aevKey(attribute, entity, id string) []byte {
	return key(tagAEV, attribute, entity, id)
}

func vaeKey(target, attribute, id string) []byte {
	return key(tagVAE, target, attribute, id)
}

func timeKey(lastUpdated, id string) []byte {
	return key(tagTime, lastUpdated, id)
}

func messageKey(ts, id string) []byte { return key(tagMessage, ts, id) }

func metaKey(name string) []byte { return key(tagMeta, name) }

// aveKey addresses the unique-value index. Values are keyed by a 64-bit
// hash of their canonical encoding rather than the encoding itself, which
// bounds key size; readers verify the stored fact's value on the way out.
func aveKey(attribute string, hash [8]byte) []byte {
	dst := key(tagAVE, attribute)
	return append(dst, hash[:]...)
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0x00 {
			return end[:i+1]
		}
	}
	return nil // prefix was all 0xFF; scan to the end of the keyspace
}
