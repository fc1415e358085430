package pebble

import "bytes"

func docPrefix(collection string) []byte {
	return []byte("d\x00" + collection + "\x00")
}

func docKey(collection, pk string) []byte {
	return append(docPrefix(collection), pk...)
}

func indexPrefix(collection, index string) []byte {
	return []byte("i\x00" + collection + "\x00" + index + "\x00")
}

func indexKey(collection, index, value, pk string) []byte {
	k := indexPrefix(collection, index)
	k = append(k, value...)
	k = append(k, 0)
	return append(k, pk...)
}

func sequenceKey(collection string) []byte {
	return []byte("s\x00" + collection)
}

// indexValue strips the index prefix and the trailing pk from an index key.
func indexValue(prefix, key []byte) string {
	rest := key[len(prefix):]
	if i := bytes.LastIndexByte(rest, 0); i >= 0 {
		rest = rest[:i]
	}
	return string(rest)
}

// upperBound returns the smallest key greater than every key with prefix.
func upperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
