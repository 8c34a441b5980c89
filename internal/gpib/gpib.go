package gpib

// Conn is a command-level connection to one lab instrument. Commands are
// SCPI strings; Query sends a command and returns the instrument's reply with
// the line termination stripped.
type Conn interface {
	Write(cmd string) error
	Query(cmd string) (string, error)
	Close() error
}
