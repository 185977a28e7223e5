package must

// Must panics on error. Reserved for initialization-time failures
// that cannot happen with a well-formed program (e.g. cobra flag setup).
func Must(err error) {
	if err != nil {
		panic(err)
	}
}
