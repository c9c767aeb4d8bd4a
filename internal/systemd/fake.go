package systemd

// FakeNotifier records notifications for testing.
type FakeNotifier struct {
	States []string
}

// NewFakeNotifier creates an empty FakeNotifier.
func NewFakeNotifier() *FakeNotifier {
	return &FakeNotifier{}
}

func (f *FakeNotifier) Ready(status string)  { f.States = append(f.States, "READY="+status) }
func (f *FakeNotifier) Status(status string) { f.States = append(f.States, "STATUS="+status) }
func (f *FakeNotifier) Watchdog()            { f.States = append(f.States, "WATCHDOG") }
func (f *FakeNotifier) Stopping()            { f.States = append(f.States, "STOPPING") }

// Last returns the most recent notification, or "" if none.
func (f *FakeNotifier) Last() string {
	if len(f.States) == 0 {
		return ""
	}
	return f.States[len(f.States)-1]
}
