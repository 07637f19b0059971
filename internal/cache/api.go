package cache

import "net/url"

// Пути backend API.
const (
	pathInitialData       = "/api/v1/users/me/initial-data"
	pathCurrentTeam       = "/api/v1/users/me/current-team"
	pathPinnedDiscussions = "/api/v1/users/me/pinned-discussions"
	pathReadComments      = "/api/v1/users/me/read-comments"
	pathReadMessages      = "/api/v1/users/me/read-messages"
)

func esc(s string) string { return url.PathEscape(s) }

func pathTeam(teamID string) string { return "/api/v1/teams/" + esc(teamID) }

func pathTeamMembers(teamID string) string { return pathTeam(teamID) + "/members" }

func pathTeamMember(teamID, userID string) string {
	return pathTeamMembers(teamID) + "/" + esc(userID)
}

func pathInvitations(teamID string) string { return pathTeam(teamID) + "/invitations" }

func pathInvitation(teamID, invitationID string) string {
	return pathInvitations(teamID) + "/" + esc(invitationID)
}

func pathTeamDiscussions(teamID string) string { return pathTeam(teamID) + "/discussions" }

func pathTeamChats(teamID string) string { return pathTeam(teamID) + "/chats" }

func pathSearchComments(teamID string) string { return pathTeam(teamID) + "/search/comments" }

func pathSearchMessages(teamID string) string { return pathTeam(teamID) + "/search/messages" }

func pathDiscussion(id string) string { return "/api/v1/discussions/" + esc(id) }

func pathDiscussionArchive(id string) string { return pathDiscussion(id) + "/archive" }

func pathComments(discussionID string) string { return pathDiscussion(discussionID) + "/comments" }

func pathComment(discussionID, commentID string) string {
	return pathComments(discussionID) + "/" + esc(commentID)
}

func pathPinnedDiscussion(id string) string { return pathPinnedDiscussions + "/" + esc(id) }

func pathChat(id string) string { return "/api/v1/chats/" + esc(id) }

func pathMessages(chatID string) string { return pathChat(chatID) + "/messages" }

func pathMessage(chatID, messageID string) string {
	return pathMessages(chatID) + "/" + esc(messageID)
}

func pathThread(chatID, messageID string) string { return pathMessage(chatID, messageID) + "/thread" }
