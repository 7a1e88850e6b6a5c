package ledger

// Identity is an authenticated caller principal as resolved by the external
// wallet/account layer. The core only compares identities for equality.
type Identity string

// Height is a chain height supplied by the external block producer.
type Height uint64

// Authorize is the single capability check applied to every owner-guarded
// operation, including administrator-only registration. It returns an
// *Error carrying CodeNotAuthorized when caller is not owner.
func Authorize(op string, owner, caller Identity) error {
	if owner == "" || caller != owner {
		return Reject(op, CodeNotAuthorized, "")
	}
	return nil
}
