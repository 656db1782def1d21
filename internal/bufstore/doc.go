// Package bufstore keeps one storage per file and maps those files into
// memory.
//
// A buffer file holds exactly count elements of one data type as raw
// fixed-width values in host byte order, with no header: the element type
// and count are recorded elsewhere and supplied when the file is opened.
//
//	param_<key>   count × dtype.Size() bytes
//
// Write creates or truncates the file, maps it read-write, copies the source
// storage in and flushes before returning. Open maps an existing file and
// returns a storage whose bytes are the mapped pages, so loading costs no
// copy and several processes opening the same file share its pages.
package bufstore
