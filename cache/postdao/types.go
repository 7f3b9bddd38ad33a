package postdao

// Item is a cached durable post keyed by its durable id.
type Item struct {
	ID        string `dynamodbav:"pk" ddb:"hash"`
	Content   string `dynamodbav:"content"`
	Author    string `dynamodbav:"author"`
	Timestamp int64  `dynamodbav:"timestamp"` // unix millis
}
