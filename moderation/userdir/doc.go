// User directory consumed by the detection engine and the report/block handlers.
package userdir
