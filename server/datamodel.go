package main

/******************************************************************************
 *
 *  Description :
 *
 *    Line-protocol sentinel constants. One record per client/server line;
 *    fields are separated by ':' or '|' depending on the frame, per the
 *    wire grammar in spec.md §6. Handlers in session.go write/parse these
 *    verbatim — no JSON on this side of the wire (Coordinator pub/sub
 *    envelopes, defined in fabric.go/groupchat.go, are JSON).
 *
 *****************************************************************************/

const (
	sentinelAuthRequest = "AUTH_REQUEST"

	sentinelLoginPrompt  = "LOGIN_PROMPT"
	sentinelSignupPrompt = "SIGNUP_PROMPT"

	sentinelAuthSuccess = "AUTH_SUCCESS"
	sentinelAuthFailed  = "AUTH_FAILED"
	sentinelSessionToken = "SESSION_TOKEN"

	sentinelSessionResumed       = "SESSION_RESUMED"
	sentinelPendingMessagesStart = "PENDING_MESSAGES_START"
	sentinelPendingMsg           = "PENDING_MSG"
	sentinelPendingMessagesEnd   = "PENDING_MESSAGES_END"

	sentinelMainMenuStart = "MAIN_MENU_START"
	sentinelMainMenuEnd   = "MAIN_MENU_END"
	sentinelInvalidOption = "INVALID_OPTION"

	sentinelContactListStart = "CONTACT_LIST_START"
	sentinelContactListEnd   = "CONTACT_LIST_END"
	sentinelContactNotFound  = "CONTACT_NOT_FOUND"

	sentinelConversationStart = "CONVERSATION_START"
	sentinelConversationReady = "CONVERSATION_READY"
	sentinelSent              = "SENT"
	sentinelMessage           = "MESSAGE"

	sentinelBroadcastStart = "BROADCAST_START"
	sentinelBroadcastSent  = "BROADCAST_SENT"
	sentinelBroadcast      = "BROADCAST"

	sentinelMyGroupsStart     = "MY_GROUPS_START"
	sentinelMyGroupsEnd       = "MY_GROUPS_END"
	sentinelBrowseGroupsStart = "BROWSE_GROUPS_START"
	sentinelBrowseGroupsEnd   = "BROWSE_GROUPS_END"
	sentinelCreateGroupPrompt = "CREATE_GROUP_PROMPT"
	sentinelGroupChatStart    = "GROUP_CHAT_START"
	sentinelGroupChatReady    = "GROUP_CHAT_READY"
	sentinelGroupMembersStart = "GROUP_MEMBERS_START"
	sentinelGroupMembersEnd   = "GROUP_MEMBERS_END"
	sentinelGroupSent         = "GROUP_SENT"
	sentinelGroupMessage      = "GROUP_MESSAGE"
	sentinelGroupNameTaken    = "GROUP_NAME_TAKEN"
	sentinelNotAMember        = "NOT_A_MEMBER"

	sentinelBye  = "bye"
	sentinelBack = "back"

	// cmdRegisterDevicePrefix feeds the Push Notification Gateway
	// (SPEC_FULL.md §4.7 expansion); valid in any authenticated state.
	cmdRegisterDevicePrefix   = "REGISTER_DEVICE:"
	sentinelDeviceRegistered  = "DEVICE_REGISTERED"

	cmdLogin          = "LOGIN"
	cmdSignup         = "SIGNUP"
	cmdResumePrefix   = "RESUME_SESSION:"
	cmdBroadcastLine  = "BROADCAST"
	cmdMembers        = "/members"
	cmdLeave          = "/leave"
)

// menuOption identifies which Menu digit the client sent.
type menuOption string

const (
	menuContacts      menuOption = "1"
	menuBroadcastOnly menuOption = "2"
	menuMyGroups      menuOption = "3"
	menuBrowseGroups  menuOption = "4"
	menuCreateGroup   menuOption = "5"
)
