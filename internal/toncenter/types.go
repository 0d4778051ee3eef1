package toncenter

// Transaction is a TonCenter v3 transaction
type Transaction struct {
	Hash    string    `json:"hash"`
	Lt      string    `json:"lt"`
	Now     int64     `json:"now"`
	InMsg   *Message  `json:"in_msg,omitempty"`
	OutMsgs []Message `json:"out_msgs"`
}

// Message is a single inbound or outbound message of a transaction
type Message struct {
	Source         string          `json:"source,omitempty"`
	Destination    string          `json:"destination,omitempty"`
	Value          string          `json:"value,omitempty"` // nanotons, decimal string
	MessageContent *MessageContent `json:"message_content,omitempty"`
}

// MessageContent carries the raw body and, when available, its decoded form
type MessageContent struct {
	Decoded *DecodedBody `json:"decoded,omitempty"`
}

// DecodedBody is the decoded message body; Comment is set for text comments
type DecodedBody struct {
	Type    string `json:"type,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// TransactionsResponse is the response from the transactions endpoint
type TransactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
}

// Account contains basic account state
type Account struct {
	Balance string `json:"balance"` // nanotons, decimal string
	Status  string `json:"status"`
}
