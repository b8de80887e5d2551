package core

import "strings"

// UserType 是用户标识的类型。
type UserType string

const (
	UserUID  UserType = "uid"  // 登录用户
	UserUD   UserType = "ud"   // 匿名设备
	UserCold UserType = "cold" // 冷启动伪用户
)

// ColdUserID 是冷启动伪用户的 id。
const ColdUserID = "cold"

// Identity 表示请求方的身份：UID 与 UD 至多使用一个，UID 优先。
type Identity struct {
	UID string
	UD  string
}

// ColdIdentity 返回冷启动伪用户。
func ColdIdentity() Identity { return Identity{} }

// IdentityOf 根据 (userType, userID) 还原身份。
func IdentityOf(userType UserType, userID string) Identity {
	switch userType {
	case UserUID:
		return Identity{UID: userID}
	case UserUD:
		return Identity{UD: userID}
	default:
		return Identity{}
	}
}

// IsCold 没有任何标识。
func (id Identity) IsCold() bool { return id.UID == "" && id.UD == "" }

// Type 返回生效的用户类型。
func (id Identity) Type() UserType {
	switch {
	case id.UID != "":
		return UserUID
	case id.UD != "":
		return UserUD
	default:
		return UserCold
	}
}

// UserID 返回生效的用户 id。
func (id Identity) UserID() string {
	switch {
	case id.UID != "":
		return id.UID
	case id.UD != "":
		return id.UD
	default:
		return ColdUserID
	}
}

// Canonical 丢弃被 UID 覆盖的 UD。
func (id Identity) Canonical() Identity {
	if id.UID != "" {
		return Identity{UID: id.UID}
	}
	return id
}

// CleanUD 把 ud 中的 "-" 替换为 "_"，与历史缓存 key 保持一致。
func CleanUD(ud string) string {
	return strings.ReplaceAll(ud, "-", "_")
}
