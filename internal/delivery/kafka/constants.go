package kafka

const (
	TopicCreateRequest  = "coupon.create.req"
	TopicCreateResponse = "coupon.create.resp"
	TopicUseRequest     = "coupon.use.req"
	TopicUseResponse    = "coupon.use.resp"

	TopicDLQSuffix = ".dlq"
	ErrorHeaderKey = "x-error"

	// Correlation store key prefixes; create and use task ids live in
	// separate namespaces.
	KeyPrefixCreate = "create:"
	KeyPrefixUse    = "use:"
)
