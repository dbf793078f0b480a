// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

// StorageLocation is where a DataReference's bytes currently live.
type StorageLocation int

const (
	StorageLocationUnspecified StorageLocation = iota
	StorageLocationMemory
	StorageLocationDisk
	StorageLocationDatabase
)

// DataReference is a pointer to data too large to inline into a tool result
// or LLM message, stored in SharedMemoryStore, SQLResultStore, or overflowed
// to disk. Tool executors and the memory manager exchange these rather than
// the underlying bytes to keep context rendering cheap.
type DataReference struct {
	ID          string
	SizeBytes   int64
	Location    StorageLocation
	Checksum    string
	Compressed  bool
	ContentType string
	Metadata    map[string]string
	StoredAt    int64 // unix millis
}
