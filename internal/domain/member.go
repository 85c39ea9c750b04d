package domain

// Member is one live session's participation in a conversation.
// No transport or lifecycle logic here.
type Member struct {
	Principal Participant
	Peer      ParticipantID
	Room      RoomKey
}

// NewMember resolves the room for principal talking to peer.
func NewMember(principal Participant, peer ParticipantID) (*Member, error) {
	key, err := ResolveRoom(principal.ID, peer)
	if err != nil {
		return nil, err
	}
	return &Member{Principal: principal, Peer: peer, Room: key}, nil
}
