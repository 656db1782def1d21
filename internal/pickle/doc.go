// Package pickle encodes arbitrary Go object graphs into a JSON skeleton and
// decodes them back.
//
// The skeleton keeps the graph's shape: pointers are memoized so shared
// pointees are encoded once and come back shared, and cycles are allowed.
// Structs are encoded by exported field, maps as ordered key/value pairs and
// interface values by registered type name (see Register).
//
// Two hooks let a caller take leaves out of the skeleton:
//
//   - EncoderOptions.PersistentID is consulted for every non-nil pointer. When
//     it claims the value, the returned record is written as {"$pid": record}
//     and the pointee is not walked.
//   - DecoderOptions.PersistentLoad turns such a record back into a live value.
//
// Types may replace their encoded form by implementing Marshaler and
// Unmarshaler.
//
// Skeleton node forms:
//
//	scalars       JSON numbers, strings and booleans (non-finite floats as "NaN", "+Inf", "-Inf")
//	string        JSON string, or {"$bytes": base64} when not valid UTF-8
//	[]byte        base64 string
//	slice, array  JSON array (nil slice is null)
//	map           array of [key, value] pairs sorted by encoded key (nil map is null)
//	struct        object keyed by field name
//	pointer       null, {"$ref": n} into the objects table, or {"$pid": record}
//	interface     null or {"$type": name, "$value": node}
package pickle
