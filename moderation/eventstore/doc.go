// Moderation component for recording report and block events, counting them over trailing windows, and queueing flags.
//
// Includes an interface and implementations using redis, a SQL database (via gorm), and in-process memory.
package eventstore
