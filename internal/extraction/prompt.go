/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package extraction

import (
    "fmt"
    "time"
)

const promptTemplate = `Extract one issue-tracker task from the chat message below.
Return a single JSON object with ALL of these keys (use null when unknown):
{
  "summary": "short title, copied from the message",
  "issuetype": "Bug | Task | Epic | Improvement",
  "description": "the message content without assignment or epic-link instructions",
  "priority": "Highest | High | Medium | Low | Lowest, or null",
  "start_date": "YYYY-MM-DD or null",
  "due_date": "YYYY-MM-DD or null",
  "epic_link": "epic key (e.g. PROJ-123) or epic name, or null",
  "assignee": "person name or email, or null",
  "media_urls": ["image or video URLs found in the message"]
}

Rules:
1. issuetype is "Epic" ONLY when the message explicitly asks to create an epic ("tạo Epic", "create Epic", or starts with "Epic:").
   "epic link", "link to epic" and "gán epic" mean the task belongs to an existing epic: use "Task" and fill epic_link.
   "Bug" when the message reports a bug ("bug", "lỗi", "defect"). "Improvement" for "improvement", "cải tiến". Otherwise "Task".
2. If epic_link is set, issuetype must not be "Epic".
3. priority from urgency words: "urgent", "khẩn cấp", "highest", "cao nhất" -> Highest; "high", "cao" -> High;
   "medium", "trung bình", "bình thường" -> Medium; "low", "thấp", "không gấp" -> Low. No urgency word -> null.
4. Today is %s. Convert every date to YYYY-MM-DD. Day-first for numeric dates (15/01/2024 is 15 January).
   "hôm nay"/"today" -> today, "ngày mai"/"tomorrow" -> +1 day, "tuần sau"/"next week" -> +7 days, "tháng sau"/"next month" -> +30 days.
   start_date comes from "start date", "bắt đầu", "từ"/"from"; due_date from "due", "deadline", "hạn chót", "đến"/"to".
5. assignee follows "assign to", "assignee:", "gán cho", "gắn cho", "gán task này cho". Drop parenthetical suffixes like "(DEV)".
6. media_urls lists every URL ending in an image or video extension (.jpg .jpeg .png .gif .webp .svg .bmp .mp4 .mov .avi .webm .mkv)
   or pointing at youtube.com, youtu.be, vimeo.com, drive.google.com. Empty array when none.
7. Output JSON only. No prose, no code fences.

Message:
<<<
%s
>>>`

// BuildPrompt embeds the message and the reference date into the fixed instruction.
func BuildPrompt(text string, now time.Time) string {
    return fmt.Sprintf(promptTemplate, now.Format("2006-01-02 (Monday)"), text)
}
