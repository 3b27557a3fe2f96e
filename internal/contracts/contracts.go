package contracts

// TableNamer maps a Go type to the database table it is stored in.
type TableNamer interface {
	TableName() string
}
