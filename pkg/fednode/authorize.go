package fednode

// isAuthorized evaluates the fixed access rule: reads are always permitted;
// writes and permission changes require the session subject to equal the
// package creator. Access rules embedded in metadata documents are
// descriptive output and never consulted.
func isAuthorized(session Session, pkg *DataPackage, action Permission) bool {
	if action == PermissionRead {
		return true
	}
	if action != PermissionWrite && action != PermissionChangePermission {
		return false
	}
	return pkg.CreatedBy == session.Subject
}

// authorize turns a failed isAuthorized check into a NotAuthorized error
// carrying the identifier the request named.
func authorize(session Session, pkg *DataPackage, action Permission, identifier string) error {
	if isAuthorized(session, pkg, action) {
		return nil
	}
	return notAuthorized("subject "+session.Subject+" may not "+string(action), identifier)
}
