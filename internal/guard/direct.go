package guard

// DirectInvoker dispatches tool calls straight to the registry with no
// policy check and no audit record. It exists only for the baseline
// demo mode, to contrast an unguarded run against a guarded one — never
// use it where enforcement matters.
type DirectInvoker struct {
	registry *Registry
}

// NewDirectInvoker returns an unguarded dispatcher over the registry.
func NewDirectInvoker(r *Registry) *DirectInvoker {
	return &DirectInvoker{registry: r}
}

// Invoke looks the tool up and runs it.
func (d *DirectInvoker) Invoke(tool string, args map[string]any) (any, error) {
	impl, err := d.registry.Lookup(tool)
	if err != nil {
		return nil, err
	}
	return impl.Invoke(args)
}
