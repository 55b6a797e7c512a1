package livecache

// Key builders. Keep these in one place so the keyspace is auditable.
//
// Namespaces:
//   call:active:{callID}       session blob
//   call:members:{callID}      participant set
//   call:user:{userID}         user -> active call pointer
//   huddle:active:{huddleID}   session blob
//   huddle:members:{huddleID}  participant set
//   huddle:channel:{channelID} channel -> active huddle pointer
//   signal:mailbox:{sessionID}:{userID}

func ActiveCallKey(callID string) string { return "call:active:" + callID }

func CallMembersKey(callID string) string { return "call:members:" + callID }

func UserActiveCallKey(userID string) string { return "call:user:" + userID }

func ActiveHuddleKey(huddleID string) string { return "huddle:active:" + huddleID }

func HuddleMembersKey(huddleID string) string { return "huddle:members:" + huddleID }

func ChannelHuddleKey(channelID string) string { return "huddle:channel:" + channelID }

func MailboxKey(sessionID, userID string) string {
	return "signal:mailbox:" + sessionID + ":" + userID
}
