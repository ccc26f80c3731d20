package fetch

// OpKind names a class of fetch operation.
type OpKind string

const (
	OpConversations OpKind = "conversations"
	OpParticipants  OpKind = "participants"
	OpMessages      OpKind = "messages"
)

// OpKey identifies one deduplicatable fetch. Scope is the conversation id
// for message fetches and empty for account-wide lists.
type OpKey struct {
	Kind  OpKind
	Scope string
}

func keyConversations() OpKey         { return OpKey{Kind: OpConversations} }
func keyParticipants() OpKey          { return OpKey{Kind: OpParticipants} }
func keyMessages(convID string) OpKey { return OpKey{Kind: OpMessages, Scope: convID} }
