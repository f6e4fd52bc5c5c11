// Data model shared by the moderation stores, detection engine, and service: report and block events, flags, and error kinds.
package event
