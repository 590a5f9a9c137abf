package realm

// BindingContext observes a realm. DidChange is called once for every
// commit made by another realm over the same file, on the committing
// goroutine. It is a hint to refresh, it carries no information.
type BindingContext interface {
	DidChange()
}

// BindingContextFunc adapts a function to BindingContext.
type BindingContextFunc func()

func (f BindingContextFunc) DidChange() {
	f()
}

// Releaser is implemented by binding contexts that hold resources. Release
// is called when the realm is closed.
type Releaser interface {
	Release()
}
