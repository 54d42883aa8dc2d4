package network

// 消息类型定义
const (
	MsgTypeHeartbeat = 1

	// 动作
	MsgTypeCreateRoom  = 101
	MsgTypeJoinRoom    = 102
	MsgTypeLeaveRoom   = 103
	MsgTypeStartGame   = 104
	MsgTypeMarkReady   = 105
	MsgTypeRequestVote = 106
	MsgTypeCastVote    = 107
	MsgTypeSkipVote    = 108
	MsgTypeNextRound   = 109
	MsgTypeRematch     = 110

	// 推送
	MsgTypeRoomSnapshot     = 301
	MsgTypeRoomDeleted      = 302
	MsgTypeDiscussionEnding = 303
	MsgTypeError            = 304
)
