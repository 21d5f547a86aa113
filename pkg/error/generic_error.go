package error

// GenericError is implemented by errors that carry their own HTTP mapping.
// The REST recovery middleware uses it to translate application errors into
// response codes without the handlers repeating the mapping.
type GenericError interface {
	Error() string
	ErrCode() string
	StatusCode() int
}
