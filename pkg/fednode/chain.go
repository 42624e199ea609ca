package fednode

// validateUpdateMetadata rejects incoming metadata that would corrupt the
// version chain: a document may not arrive already obsoleted, and when it
// declares a predecessor that predecessor must be the object being updated.
func validateUpdateMetadata(meta SystemMetadata, pid string) error {
	if meta.ObsoletedBy != "" {
		return invalidMetadata("a new object cannot be created already obsoleted", pid)
	}
	if meta.Obsoletes != "" && meta.Obsoletes != pid {
		return invalidMetadata("obsoletes must name the object being updated", pid)
	}
	return nil
}

// validateNotObsoleted rejects a second update of the same object; the
// obsoletedBy link is set exactly once.
func validateNotObsoleted(meta SystemMetadata, pid string) error {
	if meta.ObsoletedBy != "" {
		return invalidMetadata("object is already obsoleted by "+meta.ObsoletedBy, pid)
	}
	return nil
}
