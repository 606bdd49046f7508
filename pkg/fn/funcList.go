package fn

// FuncList accumulates cleanup functions to be executed in reverse order
// of registration.
type FuncList struct {
	funcs []func()
}

// AddFunc appends a function to the list.
func (l *FuncList) AddFunc(f func()) {
	l.funcs = append(l.funcs, f)
}

// Execute runs all registered functions, last added first, and empties the list.
func (l *FuncList) Execute() {
	for i := len(l.funcs) - 1; i >= 0; i-- {
		l.funcs[i]()
	}
	l.funcs = nil
}

// ToFunction returns Execute as a plain function value.
func (l *FuncList) ToFunction() func() {
	return l.Execute
}
