// Moderation component tracking per-user posting and login ban expirations.
//
// Includes an interface and implementations using redis, a SQL database (via gorm), and in-process memory, plus a read-through cache wrapper.
package suspendstore
