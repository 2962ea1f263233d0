package event

const UserDeletedDestination string = "user_deleted"
const UserDeletedConsumerTwoFactor string = "user_deleted_twofactor"

type UserDeletedMessage struct {
	UserID int64 `json:"user_id"`
}
