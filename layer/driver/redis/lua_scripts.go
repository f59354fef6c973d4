package redis

// groupSendLua prunes expired members of a group and pushes the payload to
// every remaining member whose inbox is below capacity.
// KEYS[1]: group key
// ARGV[1]: oldest join time still alive (unix seconds)
// ARGV[2]: JSON payload
// ARGV[3]: inbox capacity
// ARGV[4]: inbox expiry in seconds
// ARGV[5]: inbox key prefix (e.g. "asgi:")
// Returns: number of inboxes the payload was pushed to.
const groupSendLua = `
redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, "(" .. ARGV[1])
local members = redis.call("ZRANGE", KEYS[1], 0, -1)
local capacity = tonumber(ARGV[3])
local expiry = tonumber(ARGV[4])
local delivered = 0
for _, channel in ipairs(members) do
    local key = ARGV[5] .. channel
    if redis.call("LLEN", key) < capacity then
        redis.call("RPUSH", key, ARGV[2])
        redis.call("EXPIRE", key, expiry)
        delivered = delivered + 1
    end
end
return delivered
`

// sendLua pushes the payload to one inbox unless it is at capacity.
// KEYS[1]: inbox key
// ARGV[1]: JSON payload
// ARGV[2]: inbox capacity
// ARGV[3]: inbox expiry in seconds
// Returns: 1 if pushed, 0 if the inbox is full.
const sendLua = `
if redis.call("LLEN", KEYS[1]) >= tonumber(ARGV[2]) then
    return 0
end
redis.call("RPUSH", KEYS[1], ARGV[1])
redis.call("EXPIRE", KEYS[1], tonumber(ARGV[3]))
return 1
`
