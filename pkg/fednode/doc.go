// Package fednode adapts an opaque data repository to the member-node
// contract of a federated replication network.
//
// It exposes a single Service interface covering the node operations:
// object creation, retrieval, description, system metadata access, version
// chain updates, archival, deletion, identifier generation and capacity
// reporting. The backing repository is pluggable through the DataRepository
// interface; implementations (memory, Postgres) are provided under
// subpackages, as are blob stores (memory, filesystem, S3) used by the
// Postgres repository for file payloads.
//
// Metadata Strategy
//
// Objects published through this node carry a persisted system metadata
// document stored as a sidecar file next to the content. Objects that were
// published elsewhere but are shared into this node's scope have no sidecar;
// their metadata is synthesized on the fly from the stored package fields.
// Callers cannot tell the two apart except that synthesized documents are
// read-only.
package fednode
